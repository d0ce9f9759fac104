package google

// DefaultOAuthScopes are the scopes requested when the settings name none.
//
// The scopes provide access to:
//   - Gmail: send and read the sender profile
//   - Google Drive: intake folders, archive moves and large-file uploads
var DefaultOAuthScopes = []string{
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/drive",
}

// ScopesOrDefault returns scopes, or DefaultOAuthScopes when scopes is empty.
func ScopesOrDefault(scopes []string) []string {
	if len(scopes) == 0 {
		return DefaultOAuthScopes
	}
	return scopes
}
