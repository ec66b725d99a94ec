package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/dori/taskdeck/internal/model"
)

// Registration is the signup request body.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the data of a successful login.
type LoginResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func required(fields ...[2]string) error {
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			return &model.ValidationError{Field: f[0], Message: f[0] + " is required"}
		}
	}
	return nil
}

// Register creates an account. The server sends a verification email.
func (c *Client) Register(ctx context.Context, r Registration) (string, error) {
	if err := required([2]string{"name", r.Name}, [2]string{"email", r.Email}, [2]string{"password", r.Password}); err != nil {
		return "", err
	}
	r.Email = strings.TrimSpace(r.Email)

	data, err := c.do(ctx, request{
		op: "register", method: http.MethodPost, path: "/user/user-registration", body: r,
	})
	if err != nil {
		return "", err
	}
	return messageOf(data, "Registration successful! Please check your email to verify your account."), nil
}

// Login exchanges credentials for a session token and profile.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if err := required([2]string{"email", email}, [2]string{"password", password}); err != nil {
		return LoginResult{}, err
	}

	data, err := c.do(ctx, request{
		op: "login", method: http.MethodPost, path: "/auth/login",
		body: map[string]string{"email": strings.TrimSpace(email), "password": password},
	})
	if err != nil {
		return LoginResult{}, err
	}

	res, err := decode[LoginResult]("login", data)
	if err != nil {
		return LoginResult{}, err
	}
	res.Token = strings.TrimSpace(strings.TrimPrefix(res.Token, "Bearer "))
	if res.Token == "" {
		return LoginResult{}, &model.FetchError{Op: "login", Message: "login response did not include a token"}
	}
	return res, nil
}

// VerifyEmail confirms an address with the token from the verification email.
func (c *Client) VerifyEmail(ctx context.Context, email, token string) (string, error) {
	if err := required([2]string{"email", email}, [2]string{"token", token}); err != nil {
		return "", err
	}

	data, err := c.do(ctx, request{
		op: "verify email", method: http.MethodPost, path: "/auth/email-verification",
		body: map[string]string{"email": strings.TrimSpace(email), "token": strings.TrimSpace(token)},
	})
	if err != nil {
		return "", err
	}
	return messageOf(data, "Email verified successfully!"), nil
}

// ResendVerification asks the server to send a fresh verification email.
func (c *Client) ResendVerification(ctx context.Context, email string) (string, error) {
	if err := required([2]string{"email", email}); err != nil {
		return "", err
	}

	data, err := c.do(ctx, request{
		op: "resend verification", method: http.MethodPost, path: "/auth/resend-email-verification",
		body: map[string]string{"email": strings.TrimSpace(email)},
	})
	if err != nil {
		return "", err
	}
	return messageOf(data, "Verification link resent successfully!"), nil
}

// ForgotPassword requests a password reset link.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	if err := required([2]string{"email", email}); err != nil {
		return "", err
	}

	data, err := c.do(ctx, request{
		op: "forgot password", method: http.MethodPost, path: "/auth/forget-password",
		body: map[string]string{"email": strings.TrimSpace(email)},
	})
	if err != nil {
		return "", err
	}
	return messageOf(data, "Password reset link sent!"), nil
}

// ResetPassword sets a new password using the token from the reset link.
// The token is sent as-is in the Authorization header.
func (c *Client) ResetPassword(ctx context.Context, resetToken, email, newPassword, confirm string) (string, error) {
	if err := required([2]string{"email", email}, [2]string{"password", newPassword}); err != nil {
		return "", err
	}
	if newPassword != confirm {
		return "", &model.ValidationError{Field: "confirm", Message: "Passwords do not match. Please try again."}
	}

	data, err := c.do(ctx, request{
		op: "reset password", method: http.MethodPost, path: "/auth/reset-password",
		auth: authRaw, token: strings.TrimSpace(resetToken),
		body: map[string]string{"email": strings.TrimSpace(email), "newPassword": newPassword},
	})
	if err != nil {
		return "", err
	}
	return messageOf(data, "Password reset successfully!"), nil
}
