// Package web embeds the HTML templates and static files of the admin UI and
// the message redirect page.
package web

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/aquamarinepk/warden"
	"github.com/aquamarinepk/warden/fileserver"
	"github.com/aquamarinepk/warden/template"
)

// MessageTemplate renders message redirects.
const MessageTemplate = "message.html"

//go:embed assets
var assets embed.FS

// Assets is the embedded tree rooted at assets/.
func Assets() fs.FS {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// NewTemplates returns a manager over the embedded templates. It must be
// started before rendering.
func NewTemplates(log warden.Logger) *template.Manager {
	return template.NewManager(Assets(), template.WithLogger(log))
}

// NewStatic serves the embedded static files under /static of the router it
// is registered on.
func NewStatic(log warden.Logger) *fileserver.Server {
	return fileserver.New(Assets(), fileserver.WithLogger(log))
}

// MessagePage renders message redirects as a full HTML page. It satisfies
// redirect.MessageRenderer.
type MessagePage struct {
	templates *template.Manager
}

func NewMessagePage(templates *template.Manager) *MessagePage {
	return &MessagePage{templates: templates}
}

type messageView struct {
	Status     int
	StatusText string
	Message    string
	Path       string
}

func (p *MessagePage) RenderMessage(w http.ResponseWriter, r *http.Request, status int, message string) error {
	return p.templates.Render(w, MessageTemplate, status, messageView{
		Status:     status,
		StatusText: http.StatusText(status),
		Message:    message,
		Path:       r.URL.Path,
	})
}
