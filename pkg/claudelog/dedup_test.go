package claudelog

import "testing"

func TestDedup(t *testing.T) {
	items := []Item{
		{Seq: 1, Payload: []byte(`"a"`)},
		{Seq: 2, Payload: []byte(`"b"`)},
		{Seq: 3, Payload: []byte(`"c"`)},
	}

	fresh := Dedup(items, 1)
	if len(fresh) != 2 || fresh[0].Seq != 2 || fresh[1].Seq != 3 {
		t.Fatalf("unexpected result: %+v", fresh)
	}
}

func TestDedup_AllAlreadyStored(t *testing.T) {
	items := []Item{{Seq: 1}, {Seq: 2}}
	fresh := Dedup(items, 5)
	if len(fresh) != 0 {
		t.Fatalf("expected no fresh items, got %+v", fresh)
	}
}

func TestDedup_OverlappingResend(t *testing.T) {
	// client resends the last two lines of its previous batch plus one new one
	items := []Item{{Seq: 2}, {Seq: 3}, {Seq: 4}}
	fresh := Dedup(items, 3)
	if len(fresh) != 1 || fresh[0].Seq != 4 {
		t.Fatalf("expected only seq 4, got %+v", fresh)
	}
}

func TestDedup_FromEmptyStream(t *testing.T) {
	items := []Item{{Seq: 1}, {Seq: 2}}
	fresh := Dedup(items, -1)
	if len(fresh) != 2 {
		t.Fatalf("expected both items fresh, got %+v", fresh)
	}
}
