package handler

import "github.com/sakif/accountlink/internal/service"

// Request allow-lists. Only the fields declared here are read from a request
// body; anything else a client sends (provider, uid, encryptedPassword, id, ...)
// is ignored by the decoder and never reaches the service.

// SignUpParams is the body of POST /users/sign_up. Nickname is the one field
// beyond the standard credentials.
type SignUpParams struct {
	Email                string `json:"email"                validate:"required,email,max=255"`
	Password             string `json:"password"             validate:"required,min=6,max=72"`
	PasswordConfirmation string `json:"passwordConfirmation" validate:"required,eqfield=Password"`
	Nickname             string `json:"nickname"             validate:"max=50"`
}

func (p SignUpParams) input() service.SignUpInput {
	return service.SignUpInput{
		Email:                p.Email,
		Password:             p.Password,
		PasswordConfirmation: p.PasswordConfirmation,
		Nickname:             p.Nickname,
	}
}

// SignInParams is the body of POST /users/sign_in. RememberMe asks for a
// long-lived session.
type SignInParams struct {
	Email      string `json:"email"      validate:"required"`
	Password   string `json:"password"   validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

// AccountUpdateParams is the body of PUT /users. Absent fields are nil and
// left unchanged. currentPassword is required for every change. A password
// without a confirmation is rejected by the service.
type AccountUpdateParams struct {
	Email                *string `json:"email"                validate:"omitempty,email,max=255"`
	Nickname             *string `json:"nickname"             validate:"omitempty,max=50"`
	Password             *string `json:"password"             validate:"omitempty,min=6,max=72"`
	PasswordConfirmation *string `json:"passwordConfirmation" validate:"omitempty,eqfield=Password"`
	CurrentPassword      string  `json:"currentPassword"      validate:"required"`
}

func (p AccountUpdateParams) input() service.AccountUpdateInput {
	return service.AccountUpdateInput{
		Email:                p.Email,
		Nickname:             p.Nickname,
		Password:             p.Password,
		PasswordConfirmation: p.PasswordConfirmation,
		CurrentPassword:      p.CurrentPassword,
	}
}
