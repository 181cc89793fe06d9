package timetable

import "strings"

// kindRoots is checked in order; the first root found in the lower-cased label wins.
var kindRoots = []struct {
	kind  Kind
	roots []string
}{
	{KindLecture, []string{"лекц", "lecture"}},
	{KindSeminar, []string{"семинар", "seminar"}},
	{KindPractical, []string{"практ", "practic", "practical"}},
	{KindLab, []string{"лаб", "lab"}},
	{KindColloquium, []string{"коллокв", "colloq"}},
	{KindConsultation, []string{"консульт", "consult"}},
	{KindCredit, []string{"зачет", "зачёт", "зач.", "credit"}},
	{KindExam, []string{"экзам", "exam"}},
}

// ClassifyKind maps a free-text kind label to the fixed vocabulary.
func ClassifyKind(label string) Kind {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return KindUnknown
	}
	for _, kr := range kindRoots {
		for _, root := range kr.roots {
			if strings.Contains(l, root) {
				return kr.kind
			}
		}
	}
	return KindUnknown
}
