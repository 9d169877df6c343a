package auth

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type forgotForm struct {
	Email string `validate:"required,email"`
}

type resetForm struct {
	Token    string `validate:"required"`
	Password string `validate:"required,min=8"`
}

// formData backs the login and password pages.
type formData struct {
	Email  string
	Next   string
	Token  string
	Errors map[string]string
}
