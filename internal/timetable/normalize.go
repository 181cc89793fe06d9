package timetable

import (
	"errors"
	"regexp"
	"strings"
)

// EntityKind is what a timetable is requested for.
type EntityKind string

const (
	EntityGroup      EntityKind = "group"
	EntityInstructor EntityKind = "instructor"
)

func (k EntityKind) Valid() bool { return k == EntityGroup || k == EntityInstructor }

var ErrEmptyRecord = errors.New("timetable: record has no usable fields")

// InstructorSep joins several instructors of one lesson.
const InstructorSep = "; "

// fields is the canonical intermediate shape every adapter returns.
type fields struct {
	date       string
	timeText   string
	begin, end string
	title      string
	kindLabel  string
	instructor string
	groups     string
	room       string
	building   string
	onlineFlag bool
	link       string
	brk        int
}

// keySet lists candidate keys per attribute in priority order.
type keySet struct {
	date, timeCombined, begin, end []string
	title, kind, room, building    []string
	brk                            []string
	groups, groupLists             []string
}

// adapter probes one entity kind's records.
type adapter struct {
	keys keySet
}

var commonKeys = keySet{
	date:         []string{"date", "day", "date_str", "lesson_date", "start", "datetime"},
	timeCombined: []string{"time", "time_range", "timeRange"},
	begin:        []string{"beginLesson", "begin", "time_from", "start_time", "time_start", "timeStart"},
	end:          []string{"endLesson", "end", "time_to", "end_time", "time_end", "timeEnd"},
	title:        []string{"title", "discipline", "subject", "lesson", "nameOfDiscipline", "disciplineName"},
	kind:         []string{"kindOfWork", "type", "lesson_type", "format", "kind"},
	room:         []string{"auditorium", "room", "auditory", "place", "auditoriumName", "location"},
	building:     []string{"building", "building_name", "buildingName"},
	brk:          []string{"break", "break_min", "break_minutes", "pause"},
	groups:       []string{"group", "groups", "stream", "subGroup"},
	groupLists:   []string{"listGroups", "groups_list", "groupsList"},
}

// Instructor timetables label each lesson with the audience, so the group
// fields are probed in the order that source uses.
var adapters = map[EntityKind]adapter{
	EntityGroup:      {keys: commonKeys},
	EntityInstructor: {keys: commonKeys.withGroups([]string{"stream", "group", "groups", "subGroup"})},
}

func (k keySet) withGroups(groups []string) keySet {
	k.groups = groups
	return k
}

func (a adapter) extract(r Record) fields {
	k := a.keys
	f := fields{
		date:       NormalizeDateKey(firstString(r, k.date...)),
		timeText:   firstString(r, k.timeCombined...),
		begin:      firstString(r, k.begin...),
		end:        firstString(r, k.end...),
		title:      firstString(r, k.title...),
		kindLabel:  firstString(r, k.kind...),
		instructor: instructorOf(r),
		groups:     groupsOf(r, k),
		room:       firstString(r, k.room...),
		building:   firstString(r, k.building...),
		onlineFlag: anyTruthy(r, onlineFlagKeys...),
		link:       discoverLink(r),
		brk:        firstInt(r, k.brk...),
	}
	return f
}

// Normalize maps one raw record to a Lesson. ErrEmptyRecord means "skip it".
func Normalize(kind EntityKind, r Record) (Lesson, error) {
	if len(r) == 0 {
		return Lesson{}, ErrEmptyRecord
	}
	a, ok := adapters[kind]
	if !ok {
		a = adapters[EntityGroup]
	}
	f := a.extract(r)

	tr := ParseTimeRange(f.timeText)
	if f.timeText == "" {
		tr = RangeOf(f.begin, f.end)
	}
	if tr.IsZero() && f.title == "" && f.instructor == "" && f.groups == "" {
		return Lesson{}, ErrEmptyRecord
	}

	return Lesson{
		Date:          f.date,
		Time:          tr,
		Title:         f.title,
		Kind:          ClassifyKind(f.kindLabel),
		KindLabel:     f.kindLabel,
		Instructor:    f.instructor,
		Groups:        f.groups,
		Room:          f.room,
		Online:        f.onlineFlag || f.link != "" || hasRemoteMarker(f.room, f.building),
		OnlineLink:    f.link,
		DeclaredBreak: f.brk,
	}, nil
}

var (
	instructorListKeys  = []string{"listOfLecturers", "lecturers", "teachers", "instructors"}
	instructorFullKeys  = []string{"lecturer_title", "teacher_full_name", "full_name", "fullName", "fio"}
	instructorShortKeys = []string{"lecturer", "teacher", "teacher_name", "prepod", "lecturerName"}
	surnameKeys         = []string{"surname", "last_name", "lastName"}
	givenKeys           = []string{"first_name", "firstName", "given_name"}
	patronymicKeys      = []string{"patronymic", "middle_name", "middleName"}

	initialsOnlyRe = regexp.MustCompile(`^(\p{Lu}\.\s*){1,3}$`)
)

// instructorOf resolves the display name(s): an explicit list of instructor
// objects, then a full-name field, then surname/given/patronymic parts, then a
// short field that is not initials-only.
func instructorOf(r Record) string {
	for _, k := range instructorListKeys {
		if names := namesFromList(r[k]); len(names) > 0 {
			return strings.Join(names, InstructorSep)
		}
	}
	if s := firstString(r, instructorFullKeys...); s != "" {
		return s
	}
	if s := assembleName(r); s != "" {
		return s
	}
	for _, k := range instructorShortKeys {
		switch v := r[k].(type) {
		case map[string]any:
			if s := nestedName(v); s != "" {
				return s
			}
		case []any:
			if names := namesFromList(v); len(names) > 0 {
				return strings.Join(names, InstructorSep)
			}
		default:
			if s := scalarString(v); s != "" && !initialsOnlyRe.MatchString(s) {
				return s
			}
		}
	}
	return ""
}

func namesFromList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, it := range list {
		var name string
		switch x := it.(type) {
		case map[string]any:
			name = nestedName(x)
		default:
			name = scalarString(x)
		}
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// nestedName resolves an instructor object, where a bare "name" is acceptable.
func nestedName(r Record) string {
	if s := instructorOf(r); s != "" {
		return s
	}
	return firstString(r, "name")
}

func assembleName(r Record) string {
	parts := make([]string, 0, 3)
	for _, keys := range [][]string{surnameKeys, givenKeys, patronymicKeys} {
		if s := firstString(r, keys...); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " ")
}

func groupsOf(r Record, k keySet) string {
	for _, key := range k.groupLists {
		list, ok := r[key].([]any)
		if !ok {
			continue
		}
		var names []string
		for _, it := range list {
			switch x := it.(type) {
			case map[string]any:
				if s := firstString(x, "group", "name", "title"); s != "" {
					names = append(names, s)
				}
			default:
				if s := scalarString(x); s != "" {
					names = append(names, s)
				}
			}
		}
		if len(names) > 0 {
			return strings.Join(names, ", ")
		}
	}
	for _, key := range k.groups {
		switch v := r[key].(type) {
		case []any:
			var names []string
			for _, it := range v {
				if s := scalarString(it); s != "" {
					names = append(names, s)
				}
			}
			if len(names) > 0 {
				return strings.Join(names, ", ")
			}
		default:
			if s := scalarString(v); s != "" && !strings.EqualFold(s, "none") {
				return s
			}
		}
	}
	return ""
}
