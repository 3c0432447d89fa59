package web

import "html/template"

// appTmpl is the single HTML shell. The browser-side client reads the
// embedded JSON config and renders the rest (document iframe, picker,
// grading bar, error dialog).
var appTmpl = template.Must(template.New("app").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Annotation assignment</title>
</head>
<body>
<script type="application/json" class="js-config">{{.ConfigJSON}}</script>
<script src="/static/app.bundle.js"></script>
</body>
</html>
`))

// errorTmpl renders server-side failures that happen before the client
// can boot (bad signature, unknown consumer key).
var errorTmpl = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Something went wrong</title>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</body>
</html>
`))

// oauthDoneTmpl closes the popup the OAuth2 authorise flow opened.
var oauthDoneTmpl = template.Must(template.New("oauthdone").Parse(`<!DOCTYPE html>
<html>
<body>
<script>
if (window.opener) { window.opener.postMessage("authorization_complete", "*"); }
window.close();
</script>
<p>Authorisation complete. You can close this window.</p>
</body>
</html>
`))
