// Package mdv2 builds text for Telegram's MarkdownV2 parse mode.
//
// Values of type M are already safe to send with ParseMode="MarkdownV2".
// Raw text enters through Esc (or Code for code spans) exactly once; escaping
// an already escaped value escapes the backslashes again.
package mdv2
