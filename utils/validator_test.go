package utils

import "testing"

type registerForm struct {
	Name            string `validate:"required,nameok"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,pwdmin"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

func TestValidateStructAccepts(t *testing.T) {
	form := registerForm{
		Name:            "Jean-Pierre d'Arc",
		Email:           "jean@example.com",
		Password:        "secret123",
		ConfirmPassword: "secret123",
	}
	if err := ValidateStruct(&form); err != nil {
		t.Fatalf("valid form rejected: %v", err)
	}
}

func TestValidateStructRejects(t *testing.T) {
	base := registerForm{
		Name:            "Jean",
		Email:           "jean@example.com",
		Password:        "secret123",
		ConfirmPassword: "secret123",
	}

	cases := []struct {
		name   string
		mutate func(*registerForm)
	}{
		{"missing name", func(f *registerForm) { f.Name = "" }},
		{"invalid characters", func(f *registerForm) { f.Name = "<script>" }},
		{"bad email", func(f *registerForm) { f.Email = "not-an-email" }},
		{"short password", func(f *registerForm) { f.Password = "abc"; f.ConfirmPassword = "abc" }},
		{"password mismatch", func(f *registerForm) { f.ConfirmPassword = "different1" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := base
			tc.mutate(&form)
			if err := ValidateStruct(&form); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
