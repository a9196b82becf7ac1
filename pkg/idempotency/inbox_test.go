package idempotency

import "testing"

func TestGenerateKeyDeterministic(t *testing.T) {
	a := GenerateKey("lisinopril", "1 tablet bid", 30)
	b := GenerateKey("lisinopril", "1 tablet bid", 30)
	if a != b {
		t.Errorf("same inputs produced different keys: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(a))
	}
}

func TestGenerateKeyNormalizesInput(t *testing.T) {
	base := GenerateKey("lisinopril", "1 tablet bid", 30)

	if got := GenerateKey("  Lisinopril  ", "1 TABLET BID", 30); got != base {
		t.Error("case and surrounding whitespace should not change the key")
	}
	// Interior whitespace is significant.
	if got := GenerateKey("lisinopril", "1  tablet  bid", 30); got == base {
		t.Error("interior whitespace changes should change the key")
	}
}

func TestGenerateKeyDistinguishesRequests(t *testing.T) {
	base := GenerateKey("lisinopril", "1 tablet bid", 30)

	others := []string{
		GenerateKey("metformin", "1 tablet bid", 30),
		GenerateKey("lisinopril", "2 tablets bid", 30),
		GenerateKey("lisinopril", "1 tablet bid", 90),
		GenerateKey("lisinopril", "1 tablet bid", 30.5),
	}
	for i, other := range others {
		if other == base {
			t.Errorf("variant %d collided with the base key", i)
		}
	}
}
