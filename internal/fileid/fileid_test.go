package fileid

import (
	"testing"

	"github.com/google/uuid"
)

func TestPointID_deterministic(t *testing.T) {
	id1 := PointID("A.pdf", 0)
	id2 := PointID("A.pdf", 0)
	if id1 != id2 {
		t.Errorf("same pair should give same ID: %q vs %q", id1, id2)
	}
	u, err := uuid.Parse(id1)
	if err != nil {
		t.Fatalf("not a UUID: %q", id1)
	}
	if u.Version() != 5 {
		t.Errorf("version = %d, want 5", u.Version())
	}
}

func TestPointID_matchesNameBasedUUID(t *testing.T) {
	// UUIDv5 in the DNS namespace of "A.pdf_0"
	want := uuid.NewSHA1(uuid.NameSpaceDNS, []byte("A.pdf_0")).String()
	if got := PointID("A.pdf", 0); got != want {
		t.Errorf("PointID = %s, want %s", got, want)
	}
}

func TestPointID_distinct(t *testing.T) {
	seen := map[string]bool{}
	for _, doc := range []string{"A.pdf", "B.pdf", "A.pdf_1"} {
		for ord := 0; ord < 3; ord++ {
			id := PointID(doc, ord)
			if seen[id] {
				t.Errorf("duplicate id for %s/%d", doc, ord)
			}
			seen[id] = true
		}
	}
}

func TestDocumentName(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"/data/uploads/A.pdf", "A.pdf"},
		{"A.pdf", "A.pdf"},
		{"/data/./uploads//report.docx", "report.docx"},
	}
	for _, tt := range tests {
		if got := DocumentName(tt.path); got != tt.want {
			t.Errorf("DocumentName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
