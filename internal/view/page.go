// Package view renders the server-side HTML shell of the chat client.
package view

import (
	"fmt"

	g "maragu.dev/gomponents"
	c "maragu.dev/gomponents/components"
	h "maragu.dev/gomponents/html"
)

// PageData is what the chat page needs to render.
type PageData struct {
	// Identity is the logged-in identity, or "" for guests.
	Identity    string
	CanModerate bool
	RequireAuth bool
	MaxUpload   int64
	Flashes     Flashes
}

// ChatPage is the single page of the application. The client script takes
// over once loaded and talks to /ws.
func ChatPage(p PageData) g.Node {
	return c.HTML5(c.HTML5Props{
		Title:    "Huddle",
		Language: "en",
		Head: []g.Node{
			h.Meta(h.Name("viewport"), h.Content("width=device-width, initial-scale=1")),
			h.Link(h.Rel("stylesheet"), h.Href("/static/style.css")),
			h.Script(h.Src("/static/client.js"), h.Defer()),
		},
		Body: []g.Node{
			h.Main(
				h.ID("app"),
				g.Attr("data-identity", p.Identity),
				g.Attr("data-moderator", fmt.Sprint(p.CanModerate)),
				g.Attr("data-require-auth", fmt.Sprint(p.RequireAuth)),
				g.Attr("data-max-upload", fmt.Sprint(p.MaxUpload)),
				flashList(p.Flashes),
				accountPanel(p),
				chatPanel(),
			),
		},
	})
}

func flashList(f Flashes) g.Node {
	if len(f.Success) == 0 && len(f.Error) == 0 {
		return nil
	}
	return h.Div(
		h.Class("flashes"),
		g.Map(f.Success, func(msg string) g.Node {
			return h.P(h.Class("flash flash-success"), g.Text(msg))
		}),
		g.Map(f.Error, func(msg string) g.Node {
			return h.P(h.Class("flash flash-error"), g.Text(msg))
		}),
	)
}

func accountPanel(p PageData) g.Node {
	return h.Section(
		h.ID("account"),
		g.If(p.Identity != "",
			h.Div(
				h.Span(g.Text("Signed in as "), h.Strong(g.Text(p.Identity))),
				h.Button(h.ID("logout"), h.Type("button"), g.Text("Log out")),
			),
		),
		g.If(p.Identity == "",
			h.Form(
				h.ID("login-form"),
				h.Input(h.Name("username"), h.Placeholder("Username"), h.MaxLength("30"), h.Required()),
				h.Input(h.Name("password"), h.Type("password"), h.Placeholder("Password"), h.Required()),
				h.Button(h.Type("submit"), h.Value("login"), g.Text("Log in")),
				h.Button(h.Type("submit"), h.Value("register"), g.Text("Register")),
				g.If(!p.RequireAuth,
					h.Button(h.ID("guest"), h.Type("button"), g.Text("Join as guest")),
				),
			),
		),
	)
}

func chatPanel() g.Node {
	return h.Section(
		h.ID("chat"),
		h.Aside(h.H2(g.Text("Online")), h.Ul(h.ID("online-users"))),
		h.Ol(h.ID("messages"), g.Attr("start", "0")),
		h.Form(
			h.ID("composer"),
			h.Input(h.ID("text"), h.Name("text"), h.MaxLength("200"), h.Placeholder("Say something"), h.AutoComplete("off")),
			h.Input(h.ID("to"), h.Name("to"), h.MaxLength("30"), h.Placeholder("To (optional)")),
			h.Input(h.ID("image"), h.Name("image"), h.Type("file"), h.Accept("image/*")),
			h.Button(h.Type("submit"), g.Text("Send")),
		),
	)
}
