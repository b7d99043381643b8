// Package webhook receives WooCommerce order webhooks over HTTP and runs each
// payload through the notification pipeline before answering.
//
// Responses follow what WooCommerce expects from a delivery URL: any 2xx marks
// the delivery as done, so delivery failures toward chat destinations are
// logged but still answered with 200. Only malformed requests get a 4xx.
package webhook
