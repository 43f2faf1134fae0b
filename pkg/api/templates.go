package api

import "html/template"

// The authority serves two small self-contained pages. Anything richer
// belongs to the downstream services.

var loginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
{{if .Message}}<p class="flash">{{.Message}}</p>{{end}}
<form method="POST" action="/login">
  <label>Username <input type="text" name="username" required></label>
  <label>Password <input type="password" name="password" required></label>
  <button type="submit">Sign in</button>
</form>
<p><a href="/register">Create an account</a></p>
</body>
</html>
`))

var registerTemplate = template.Must(template.New("register").Parse(`<!DOCTYPE html>
<html>
<head><title>Register</title></head>
<body>
<h1>Register</h1>
{{if .Message}}<p class="flash">{{.Message}}</p>{{end}}
<form method="POST" action="/register">
  <label>Username <input type="text" name="username" required></label>
  <label>Password <input type="password" name="password" required></label>
  <button type="submit">Create account</button>
</form>
<p><a href="/login">Back to sign in</a></p>
</body>
</html>
`))

type pageData struct {
	Message string
}
