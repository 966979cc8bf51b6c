package http

// Export the private function for testing
var VerifyWebhookSignature = verifyWebhookSignature

var ErrStaleTimestamp = errStaleTimestamp
