// Package upstream is the HTTP client for the university timetable API (RUZ).
//
//	GET {base}/search?term=...&type=group|person
//	GET {base}/schedule/{group|person}/{id}?start=YYYY.MM.DD&finish=YYYY.MM.DD&lng=1
//
// Responses can be cached in redis. Nothing is retried.
package upstream
