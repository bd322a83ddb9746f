package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	goPasswordless "github.com/MrEthical07/goPasswordless"
)

// Rendered is a message ready to be sent.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

type templateSet struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// Renderer turns messages into subject and bodies. The zero value is not
// usable; call NewRenderer.
type Renderer struct {
	product   string
	templates map[goPasswordless.Template]templateSet
}

type renderData struct {
	Product   string
	To        string
	ShortCode string
	Link      string
	ExpiresAt string
	ValidFor  string
}

// NewRenderer parses the built-in templates. product names the service in
// subjects and greetings.
func NewRenderer(product string) (*Renderer, error) {
	if product == "" {
		product = "your account"
	}

	r := &Renderer{product: product, templates: map[goPasswordless.Template]templateSet{}}
	for name, src := range builtinTemplates {
		text, err := texttemplate.New(string(name)).Parse(src.text)
		if err != nil {
			return nil, fmt.Errorf("parse %s text: %w", name, err)
		}
		html, err := htmltemplate.New(string(name)).Parse(src.html)
		if err != nil {
			return nil, fmt.Errorf("parse %s html: %w", name, err)
		}
		r.templates[name] = templateSet{subject: src.subject, text: text, html: html}
	}
	return r, nil
}

// Render renders msg. now is used to express the remaining validity.
func (r *Renderer) Render(msg goPasswordless.Message, now time.Time) (Rendered, error) {
	set, ok := r.templates[msg.Template]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown template %q", msg.Template)
	}

	data := renderData{
		Product:   r.product,
		To:        msg.To,
		ShortCode: msg.ShortCode,
		Link:      msg.Link,
	}
	if !msg.ExpiresAt.IsZero() {
		data.ExpiresAt = msg.ExpiresAt.UTC().Format(time.RFC1123)
		data.ValidFor = msg.ExpiresAt.Sub(now).Round(time.Minute).String()
	}

	var text, html bytes.Buffer
	if err := set.text.Execute(&text, data); err != nil {
		return Rendered{}, fmt.Errorf("render %s text: %w", msg.Template, err)
	}
	if err := set.html.Execute(&html, data); err != nil {
		return Rendered{}, fmt.Errorf("render %s html: %w", msg.Template, err)
	}

	return Rendered{
		Subject: fmt.Sprintf(set.subject, r.product),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

type templateSource struct {
	subject string
	text    string
	html    string
}

var builtinTemplates = map[goPasswordless.Template]templateSource{
	goPasswordless.TemplateSignInCode: {
		subject: "Your sign-in code for %s",
		text: `Your sign-in code is {{.ShortCode}}

Or open this link to sign in:
{{.Link}}

The code is valid for {{.ValidFor}} (until {{.ExpiresAt}}).
If you did not ask to sign in, you can ignore this message.
`,
		html: `<p>Your sign-in code is <strong>{{.ShortCode}}</strong></p>
<p><a href="{{.Link}}">Sign in to {{.Product}}</a></p>
<p>The code is valid for {{.ValidFor}} (until {{.ExpiresAt}}).</p>
<p>If you did not ask to sign in, you can ignore this message.</p>
`,
	},
	goPasswordless.TemplateAccountNotFound: {
		subject: "Sign-in attempt for %s",
		text: `Someone asked to sign in to {{.Product}} as {{.To}}, but there is no account for this address.
If this was you, try another address. Otherwise you can ignore this message.
`,
		html: `<p>Someone asked to sign in to {{.Product}} as {{.To}}, but there is no account for this address.</p>
<p>If this was you, try another address. Otherwise you can ignore this message.</p>
`,
	},
	goPasswordless.TemplatePasswordChanged: {
		subject: "Your %s password was changed",
		text: `The password of your {{.Product}} account was changed.
If you did not do this, sign in with a code and remove the password.
`,
		html: `<p>The password of your {{.Product}} account was changed.</p>
<p>If you did not do this, sign in with a code and remove the password.</p>
`,
	},
	goPasswordless.TemplatePasswordRemoved: {
		subject: "Your %s password was removed",
		text: `The password of your {{.Product}} account was removed. You can still sign in with a code sent to this address.
`,
		html: `<p>The password of your {{.Product}} account was removed. You can still sign in with a code sent to this address.</p>
`,
	},
}
