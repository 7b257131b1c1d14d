package domain

// ActivationEvidence records which channel activated an account. The two
// channels are deliberately not merged: only OTP evidence verifies the email.
type ActivationEvidence string

const (
	// ActivationByLink is a signed activation link from the welcome email.
	ActivationByLink ActivationEvidence = "link"
	// ActivationByOTP is a matched registration one-time password.
	ActivationByOTP ActivationEvidence = "otp"
)

// VerifiesEmail reports whether this evidence also proves control of the
// email address.
func (e ActivationEvidence) VerifiesEmail() bool {
	return e == ActivationByOTP
}
