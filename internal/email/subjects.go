package email

const (
	subjectLowBalance           = "Your GlassWallet credit balance is running low"
	subjectConnectionExpiredFmt = "Reconnect %s: your ad platform access expired"
	subjectDeliveryFailed       = "A webhook delivery to your endpoint failed"
)
