// Package web is the public HTTP surface: the device ingestion endpoint,
// the status, history and register pages opened from the chat menu, and the
// LINE webhook.
//
// Routes use net/http method patterns. Pages render embedded html/template
// files; every page needs a line_id query parameter, which is the chat
// destination the menu link was issued for.
package web
