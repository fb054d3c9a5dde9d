package email

import (
	"fmt"
	"strings"
	"text/template"
)

type emailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[string]emailTemplate{
	TemplateRegistrationConfirmation: {
		subject: "Registration confirmed",
		body: mustParse("registration_confirmation", `
<p>Hi {{.firstName}},</p>
<p>Your registration for {{.company}} is confirmed. Your dashboard:
<a href="{{.dashboardUrl}}">{{.dashboardUrl}}</a></p>`),
	},
	TemplateReferralCodes: {
		subject: "Your invitation codes",
		body: mustParse("referral_codes", `
<p>Hi {{.firstName}},</p>
<p>Here are your invitation codes to share: <b>{{.codes}}</b></p>
<p>Manage them at <a href="{{.dashboardUrl}}">{{.dashboardUrl}}</a></p>`),
	},
	TemplateReferralInvitation: {
		subject: "You are invited",
		body: mustParse("referral_invitation", `
<p>{{.referrerName}} ({{.referrerCompany}}) invited you.</p>
{{if .personalMessage}}<blockquote>{{.personalMessage}}</blockquote>{{end}}
<p>Your code: <b>{{.inviteCode}}</b></p>
<p>Register at <a href="{{.inviteUrl}}">{{.inviteUrl}}</a></p>`),
	},
	TemplateWaitlistConfirmation: {
		subject: "You are on the waitlist",
		body: mustParse("waitlist_confirmation", `
<p>Hi {{.firstName}},</p>
<p>Thanks for your interest. You are on the waitlist and we will be in
touch as soon as a spot opens up.</p>`),
	},
	TemplateWaitlistPromotion: {
		subject: "Your invitation is ready",
		body: mustParse("waitlist_promotion", `
<p>Hi {{.firstName}},</p>
<p>A spot opened up. Your invitation code: <b>{{.inviteCode}}</b></p>
<p>Register at <a href="{{.registrationUrl}}">{{.registrationUrl}}</a></p>`),
	},
}

func mustParse(name, body string) *template.Template {
	return template.Must(template.New(name).Parse(strings.TrimSpace(body)))
}

func renderTemplate(templateType string, vars map[string]string) (subject, body string, err error) {
	tpl, ok := templates[templateType]
	if !ok {
		return "", "", fmt.Errorf("email: unknown template %q", templateType)
	}

	var sb strings.Builder
	if err := tpl.body.Execute(&sb, vars); err != nil {
		return tpl.subject, "", err
	}
	return tpl.subject, sb.String(), nil
}
