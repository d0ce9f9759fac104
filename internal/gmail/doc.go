// Package gmail sends case and report emails through the Gmail API.
//
// Messages are rendered to MIME by the mail package and submitted with
// users.messages.send as base64url raw payloads. The client implements
// mail.Sender, so the dispatch coordinator can use it interchangeably with
// the SMTP and SES transports.
//
// Authentication:
// This package uses the OAuth token managed by the google package. Run
// "docdispatch auth" once to store a token.
//
// Example usage:
//
//	httpClient, err := google.GetHTTPClient(ctx, conf, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := gmail.NewClient(ctx, httpClient)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res := client.Send(ctx, &mail.Message{
//	    To:      []string{"recipient@example.com"},
//	    Subject: "FULL SET OE1 - ACME (ETA 01-01-2030)",
//	    HTML:    "<p>Documents attached</p>",
//	})
package gmail
