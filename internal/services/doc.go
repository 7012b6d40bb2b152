// Package services holds the shared error taxonomy and context helpers used
// across clipforge components, plus subpackages wrapping the external media
// utilities (downloader, encoder).
package services
