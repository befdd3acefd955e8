// internal/service/card/infrastructure/rule/cel_rule_test.go
package rule

import "testing"

func TestCELCodeRule(t *testing.T) {
	r, err := NewCELCodeRule(`code.matches('^[A-Z0-9-]+$') && code.size() >= 8`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	cases := []struct {
		code string
		want bool
	}{
		{"STEAM-ABC123", true},
		{"steam-abc123", false}, // 小写
		{"SHORT", false},        // 长度不够
		{"HAS SPACE-123", false},
	}
	for _, tc := range cases {
		got, err := r.Validate(tc.code)
		if err != nil {
			t.Errorf("validate %q: %v", tc.code, err)
			continue
		}
		if got != tc.want {
			t.Errorf("validate %q = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestCELCodeRuleRejectsBadExpressions(t *testing.T) {
	if _, err := NewCELCodeRule(`code +`); err == nil {
		t.Error("expected compile error for malformed expression")
	}
	if _, err := NewCELCodeRule(`code.size()`); err == nil {
		t.Error("expected error for non-bool expression")
	}
}
