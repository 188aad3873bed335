package install

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestStage_String(t *testing.T) {
	cases := map[Stage]string{
		StageInterfaceLookup:   "interface-lookup",
		StageMissingNFPayload:  "missing-nf-payload",
		StageMissingEntrySymbol: "missing-entry-symbol",
		StageMissingRequiredMap: "missing-required-map",
		StageBadLinkTarget:     "bad-link-target",
		StageMapUpdateFailure:  "map-update-failure",
		StageNoRootNF:          "no-root-nf",
		StageLoadObject:        "load-object",
		Stage(99):              "unknown-install-stage",
	}
	for stage, want := range cases {
		if got := stage.String(); got != want {
			t.Errorf("Stage(%d).String() = %q, want %q", stage, got, want)
		}
	}
}

func TestError_Formatting(t *testing.T) {
	id := uuid.New()
	inner := errors.New("boom")

	withDetail := &Error{Stage: StageMapUpdateFailure, NF: id, Detail: inner}
	if got := withDetail.Error(); got == "" {
		t.Fatalf("Error() returned empty string")
	}
	if !errors.Is(withDetail, inner) {
		t.Fatalf("errors.Is(withDetail, inner) = false, want true via Unwrap")
	}

	withoutDetail := &Error{Stage: StageNoRootNF}
	if got := withoutDetail.Error(); got == "" {
		t.Fatalf("Error() with nil Detail returned empty string")
	}
	if withoutDetail.Unwrap() != nil {
		t.Fatalf("Unwrap() on nil-Detail error = %v, want nil", withoutDetail.Unwrap())
	}
}
