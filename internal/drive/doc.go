// Package drive provides a Google Drive client for the case-folder intake and
// the large attachment fallback.
//
// The client covers the operations the dispatcher needs:
//   - Resolving a folder path such as "Docs/Entrada" to a folder ID
//   - Listing subfolders and downloading a folder tree to local disk
//   - Moving folders between the intake, in-progress and done folders
//   - Uploading a file and sharing it as "anyone with the link can read"
//
// Sync ties these together: Intake pulls case folders into the local root
// before a run, Complete files them under done (or back under the intake
// root for retry) afterwards.
//
// OAuth Authentication:
// This package uses the OAuth token managed by the google package. The drive
// scope is required for moves and uploads.
//
// Example usage:
//
//	client, err := drive.NewClient(ctx, httpClient)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	link, err := client.ShareLink(ctx, "/data/En Proceso/case/case.zip", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
package drive
