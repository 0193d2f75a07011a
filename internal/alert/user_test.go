package alert

import "testing"

func TestUserEqual(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b User
		want bool
	}{
		{"same id", NewUser(1, "a"), NewUser(1, "renamed"), true},
		{"different id", NewUser(1, "a"), NewUser(2, "a"), false},
		{"both unknown", User{Display: "x"}, User{Display: "y"}, true},
		{"one unknown", NewUser(1, "a"), User{Display: "a"}, false},
	}
	for _, tt := range tests {
		if got := tt.a.Equal(tt.b); got != tt.want {
			t.Fatalf("%s: Equal = %v, want %v", tt.name, got, tt.want)
		}
		if got := tt.b.Equal(tt.a); got != tt.want {
			t.Fatalf("%s: Equal not symmetric", tt.name)
		}
	}
}
