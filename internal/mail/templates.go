package mail

import (
	"bytes"
	"embed"
	"html/template"
	"net/url"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Email is a rendered message ready for a Sender.
type Email struct {
	Subject string
	HTML    string
}

type linkData struct {
	Name string
	Link string
}

// Links builds the frontend URLs embedded in emails.
type Links struct {
	Origin string
}

// Verify returns the email verification link for secret.
func (l Links) Verify(secret string) string {
	return l.build("/verify-email", secret)
}

// Reset returns the password reset link for secret.
func (l Links) Reset(secret string) string {
	return l.build("/reset-password", secret)
}

func (l Links) build(path, secret string) string {
	return strings.TrimRight(l.Origin, "/") + path + "?token=" + url.QueryEscape(secret)
}

// VerificationEmail renders the email sent after registration.
func VerificationEmail(name, link string) (Email, error) {
	return render("verify_email.html", "Verify your email", linkData{Name: name, Link: link})
}

// ResetEmail renders the password reset email.
func ResetEmail(name, link string) (Email, error) {
	return render("reset_password.html", "Reset your password", linkData{Name: name, Link: link})
}

func render(name, subject string, data linkData) (Email, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return Email{}, err
	}
	return Email{Subject: subject, HTML: buf.String()}, nil
}
