package wire

import "testing"

func TestParseValues(t *testing.T) {
	v := ParseValues("job_status=Pending&job_key=JSID_01_7&auth_token=&refuse_submits=false&x=1&x=2")

	if got, ok := v.Get("job_status"); !ok || got != "Pending" {
		t.Errorf("job_status = %q, %v", got, ok)
	}
	if v.Has("auth_token") {
		t.Error("blank auth_token reported as present")
	}
	if v.Has("missing") {
		t.Error("missing key reported as present")
	}
	if got, _ := v.Get("x"); got != "1" {
		t.Errorf("x = %q, want first value 1", got)
	}
}

func TestParseValues_Malformed(t *testing.T) {
	v := ParseValues("server_version=4.16.10&bad=%zz&ok=1")
	if got, _ := v.Get("server_version"); got != "4.16.10" {
		t.Errorf("server_version = %q", got)
	}
	if got, _ := v.Get("ok"); got != "1" {
		t.Errorf("ok = %q", got)
	}
}
