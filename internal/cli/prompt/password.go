package prompt

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// ErrPasswordMismatch is returned when the confirmation differs.
var ErrPasswordMismatch = errors.New("passwords do not match")

// ErrEmptyPassword is returned for an empty password. Directory servers
// treat a bind with an empty password as unauthenticated, so encoding one
// is never useful.
var ErrEmptyPassword = errors.New("password must not be empty")

// Password reads a password without echoing it.
func Password(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Mask:  '*',
		Validate: func(input string) error {
			if input == "" {
				return ErrEmptyPassword
			}
			return nil
		},
	}
	result, err := p.Run()
	return result, wrapError(err)
}

// NewPassword reads a password twice and fails if the entries differ.
func NewPassword(label string) (string, error) {
	password, err := Password(label)
	if err != nil {
		return "", err
	}
	confirm, err := Password("Confirm " + label)
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", ErrPasswordMismatch
	}
	return password, nil
}
