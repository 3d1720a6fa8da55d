package wire

import "net/url"

// Values is a key/value reply payload encoded as a URL query string,
// e.g. "job_status=Pending&job_key=JSID_01_7".
type Values map[string][]string

// ParseValues decodes payload. Malformed pairs are skipped rather than
// reported; callers detect missing data through Get.
func ParseValues(payload string) Values {
	q, _ := url.ParseQuery(payload)
	return Values(q)
}

// Get returns the first non-blank value for key.
func (v Values) Get(key string) (string, bool) {
	for _, s := range v[key] {
		if s != "" {
			return s, true
		}
	}
	return "", false
}

// Has reports whether key carries a non-blank value.
func (v Values) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}
