// Package consent renders the approval dialog shown before a client is
// authorized for the first time. Rendering is pure: metadata in, HTML out,
// no I/O. html/template handles escaping of client-supplied metadata.
package consent

import (
	"bytes"
	"fmt"
	"html/template"

	"authgate/internal/broker/models"
)

// ServerInfo describes this broker on the dialog.
type ServerInfo struct {
	Name        string
	LogoURL     string
	Description string
}

// DialogData feeds the consent template. EncodedState is the base64 JSON
// authorization request that round-trips through the form; CSRFToken is the
// form half of the double-submit pair.
type DialogData struct {
	Server       ServerInfo
	Client       models.ClientInfo
	Scopes       []string
	CSRFToken    string
	EncodedState string
	SubmitURL    string
}

var dialogTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Server.Name}} | Authorization Request</title>
<style>
body { font-family: system-ui, sans-serif; background: #f4f5f7; margin: 0; }
.card { max-width: 28rem; margin: 4rem auto; background: #fff; border-radius: 8px;
        box-shadow: 0 1px 4px rgba(0,0,0,.12); padding: 2rem; }
.logo { max-height: 48px; margin-bottom: 1rem; }
h1 { font-size: 1.25rem; margin: 0 0 .5rem; }
.client { font-weight: 600; }
ul.scopes { padding-left: 1.25rem; color: #333; }
.actions { display: flex; gap: .75rem; margin-top: 1.5rem; }
button { flex: 1; padding: .6rem 1rem; border-radius: 6px; border: 1px solid #ccc;
         background: #fff; cursor: pointer; font-size: 1rem; }
button.approve { background: #2563eb; border-color: #2563eb; color: #fff; }
.meta { margin-top: 1rem; font-size: .8rem; color: #666; }
.meta a { color: inherit; }
</style>
</head>
<body>
<div class="card">
{{if .Server.LogoURL}}<img class="logo" src="{{.Server.LogoURL}}" alt="">{{end}}
<h1>{{.Server.Name}}</h1>
{{if .Server.Description}}<p>{{.Server.Description}}</p>{{end}}
<p><span class="client">{{if .Client.ClientName}}{{.Client.ClientName}}{{else}}{{.Client.ClientID}}{{end}}</span>
is requesting access to your account.</p>
{{if .Scopes}}
<p>This will allow it to:</p>
<ul class="scopes">
{{range .Scopes}}<li>{{.}}</li>{{end}}
</ul>
{{end}}
<form method="post" action="{{.SubmitURL}}">
<input type="hidden" name="state" value="{{.EncodedState}}">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<div class="actions">
<button class="approve" type="submit" name="decision" value="approve">Approve</button>
<button type="submit" name="decision" value="deny">Deny</button>
</div>
</form>
<div class="meta">
{{if .Client.ClientURI}}<a href="{{.Client.ClientURI}}" rel="noopener noreferrer">Website</a>{{end}}
{{if .Client.PolicyURI}} &middot; <a href="{{.Client.PolicyURI}}" rel="noopener noreferrer">Privacy</a>{{end}}
{{if .Client.TOSURI}} &middot; <a href="{{.Client.TOSURI}}" rel="noopener noreferrer">Terms</a>{{end}}
</div>
</div>
</body>
</html>
`))

// Render produces the consent dialog HTML.
func Render(data DialogData) ([]byte, error) {
	var buf bytes.Buffer
	if err := dialogTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render consent dialog: %w", err)
	}
	return buf.Bytes(), nil
}
