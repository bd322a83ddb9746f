// Package mail delivers goPasswordless messages over SMTP with
// gopkg.in/gomail.v2, rendering each template to a plain text and an HTML
// part.
package mail
