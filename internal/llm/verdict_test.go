package llm

import "testing"

func TestInterpretVerdict(t *testing.T) {
	cases := []struct {
		name       string
		raw        string
		approved   bool
		wantReason string
	}{
		{
			name:     "approved",
			raw:      "APPROVED",
			approved: true,
		},
		{
			name:     "approved with trailing commentary",
			raw:      "APPROVED. The deal looks fine.",
			approved: true,
		},
		{
			name:     "approved surrounded by whitespace",
			raw:      "\n  APPROVED\n",
			approved: true,
		},
		{
			name:       "rejected with convention",
			raw:        "REJECTED: Amount seems inconsistent with description",
			approved:   false,
			wantReason: "Amount seems inconsistent with description",
		},
		{
			name:       "rejected without convention uses whole text",
			raw:        "This listing violates the platform rules.",
			approved:   false,
			wantReason: "This listing violates the platform rules.",
		},
		{
			name:       "lowercase approved fails closed",
			raw:        "approved",
			approved:   false,
			wantReason: "approved",
		},
		{
			name:       "empty text rejects with empty reason",
			raw:        "   ",
			approved:   false,
			wantReason: "",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			v := InterpretVerdict(tc.raw)
			if v.Approved != tc.approved {
				t.Fatalf("approved = %v, want %v", v.Approved, tc.approved)
			}
			if tc.approved {
				if v.Reason != nil {
					t.Fatalf("approved verdict must carry no reason, got %q", *v.Reason)
				}
				return
			}
			if v.Reason == nil {
				t.Fatalf("rejected verdict must carry a reason")
			}
			if *v.Reason != tc.wantReason {
				t.Fatalf("reason = %q, want %q", *v.Reason, tc.wantReason)
			}
		})
	}
}
