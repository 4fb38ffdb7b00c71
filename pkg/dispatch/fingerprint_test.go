package dispatch

import (
	"testing"
	"time"
)

const sampleTrace = `goroutine 1 [running]:
main.doSomething()
	/app/main.go:42 +0x123
main.helper()
	/app/main.go:30 +0x456
main.main()
	/app/main.go:10 +0x789`

func TestFingerprint_Stability(t *testing.T) {
	report := Report{
		ID:          "a8f0c8de-0000-0000-0000-000000000000",
		Timestamp:   time.Now(),
		FailureType: "*fs.PathError",
		Message:     "open /etc/app.yaml: no such file or directory",
		StackTrace:  sampleTrace,
	}

	fp1 := Fingerprint(report)
	fp2 := Fingerprint(report)

	if fp1 != fp2 {
		t.Errorf("Same report produced different fingerprints: %q vs %q", fp1, fp2)
	}

	// 16 bytes hex encoded
	if len(fp1) != 32 {
		t.Errorf("Fingerprint length = %d, want 32", len(fp1))
	}
}

func TestFingerprint_DifferentLineNumbers_SameFingerprint(t *testing.T) {
	r1 := Report{FailureType: "string", StackTrace: `goroutine 1 [running]:
main.doSomething()
	/app/main.go:42 +0x123
main.main()
	/app/main.go:10 +0x456`}
	r2 := Report{FailureType: "string", StackTrace: `goroutine 7 [running]:
main.doSomething()
	/app/main.go:99 +0xabc
main.main()
	/app/main.go:20 +0xdef`}

	if fp1, fp2 := Fingerprint(r1), Fingerprint(r2); fp1 != fp2 {
		t.Errorf("Reports differing only in line numbers should have same fingerprint: %q vs %q", fp1, fp2)
	}
}

func TestFingerprint_DifferentMemoryAddresses_SameFingerprint(t *testing.T) {
	r1 := Report{FailureType: "string", StackTrace: `goroutine 1 [running]:
main.handler(0x1234abcd)
	/app/main.go:42 +0x100`}
	r2 := Report{FailureType: "string", StackTrace: `goroutine 1 [running]:
main.handler(0xdeadbeef)
	/app/main.go:42 +0x200`}

	if fp1, fp2 := Fingerprint(r1), Fingerprint(r2); fp1 != fp2 {
		t.Errorf("Reports differing only in memory addresses should have same fingerprint: %q vs %q", fp1, fp2)
	}
}

func TestFingerprint_DifferentFailureType_DifferentFingerprint(t *testing.T) {
	r1 := Report{FailureType: "*net.OpError"}
	r2 := Report{FailureType: "*url.Error"}

	if Fingerprint(r1) == Fingerprint(r2) {
		t.Error("Reports with different failure types should have different fingerprints")
	}
}

func TestFingerprint_DifferentCauses_DifferentFingerprint(t *testing.T) {
	r1 := Report{FailureType: "*fmt.wrapError", Causes: []string{"*net.OpError"}}
	r2 := Report{FailureType: "*fmt.wrapError", Causes: []string{"*fs.PathError"}}

	if Fingerprint(r1) == Fingerprint(r2) {
		t.Error("Reports with different causes should have different fingerprints")
	}
}

func TestFingerprint_MessageTagsAndDataIgnored(t *testing.T) {
	r1 := Report{
		FailureType: "*errors.errorString",
		Message:     "Error for user 123",
		Tags:        NewTagSet("a"),
		Data:        map[string]string{"user": "123"},
	}
	r2 := Report{
		FailureType: "*errors.errorString",
		Message:     "Error for user 456",
		Tags:        NewTagSet("b"),
		Data:        map[string]string{"user": "456"},
	}

	if fp1, fp2 := Fingerprint(r1), Fingerprint(r2); fp1 != fp2 {
		t.Errorf("Reports differing only in message, tags and data should have same fingerprint: %q vs %q", fp1, fp2)
	}
}

func TestFingerprint_EmptyReport(t *testing.T) {
	if fp := Fingerprint(Report{}); len(fp) != 32 {
		t.Errorf("Fingerprint length = %d, want 32", len(fp))
	}
}

func TestNormalizeStackTrace(t *testing.T) {
	input := `goroutine 1 [running]:
main.doSomething(0x1234)
	/app/main.go:42 +0x123
pkg.helper()
	/app/pkg/helper.go:20 +0x456
runtime.main()
	/usr/local/go/src/runtime/proc.go:250 +0x789
another.function()
	/app/another.go:100 +0xabc`

	frames := normalizeStackTrace(input)

	expected := []string{"main.doSomething", "pkg.helper", "runtime.main"}
	if len(frames) != len(expected) {
		t.Fatalf("normalizeStackTrace returned %d frames, want %d", len(frames), len(expected))
	}
	for i, want := range expected {
		if frames[i] != want {
			t.Errorf("frame[%d] = %q, want %q", i, frames[i], want)
		}
	}
}

func TestNormalizeStackTrace_SkipsPanicMachinery(t *testing.T) {
	input := `goroutine 5 [running]:
runtime/debug.Stack()
	/usr/local/go/src/runtime/debug/stack.go:26 +0x5e
panic({0x1029e40?, 0x10b1f50?})
	/usr/local/go/src/runtime/panic.go:785 +0x132
example.com/svc/handler.(*Orders).Create(0xc000123456)
	/app/handler/orders.go:88 +0x1f`

	frames := normalizeStackTrace(input)

	if len(frames) != 1 || frames[0] != "example.com/svc/handler.(*Orders).Create" {
		t.Errorf("normalizeStackTrace = %v, want [example.com/svc/handler.(*Orders).Create]", frames)
	}
}
