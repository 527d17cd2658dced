// Package confluence mirrors rendered pages into Confluence.
//
// Client wraps the content REST API. Storage turns a rendered HTML page
// into a storage-format body: embedded data-URI images become attachment
// references, links to other book pages become Confluence page links and
// fenced code becomes the code macro. Writer runs the per-page sync and
// skips pages whose docbook-hash property already matches.
package confluence
