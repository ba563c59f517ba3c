// Package listing parses directory-index HTML pages into structured entries.
//
// Repository servers render directory contents as loosely structured HTML
// (Apache, nginx and Artifactory all differ). This package extracts the
// anchor links, classifies each as file or subdirectory, resolves relative
// hrefs against the page URL and scrapes best-effort size and timestamp
// hints from the surrounding text.
//
// Parse never fails: it is a pure function that returns whatever entries the
// markup yields, which for garbage input is an empty slice.
package listing
