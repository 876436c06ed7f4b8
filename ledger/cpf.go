/*
cpf.go - CPF canonicalization and check-digit validation

PURPOSE:
  Customers are keyed by CPF, the Brazilian national tax ID. Input
  arrives formatted ("529.982.247-25") or bare; it is canonicalized to
  11 digits and validated against the two check digits before any
  ledger write.

ALGORITHM:
  Digits d1..d9 are weighted 10..2, summed, and the remainder mapped to
  the first check digit; digits d1..d10 weighted 11..2 give the second.
  A remainder of 10 maps to 0. Sequences of a single repeated digit
  (e.g. "11111111111") pass the arithmetic but are not valid CPFs and
  are rejected explicitly.
*/
package ledger

// CanonicalCPF strips every non-digit character from s. It does not
// validate; callers pair it with ValidCPF.
func CanonicalCPF(s string) string {
	out := make([]byte, 0, 11)
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// ValidCPF reports whether cpf (already canonical) is a well-formed,
// checksum-valid CPF.
func ValidCPF(cpf string) bool {
	if len(cpf) != 11 {
		return false
	}

	digits := make([]int, 11)
	same := true
	for i := 0; i < 11; i++ {
		c := cpf[i]
		if c < '0' || c > '9' {
			return false
		}
		digits[i] = int(c - '0')
		if digits[i] != digits[0] {
			same = false
		}
	}
	if same {
		return false
	}

	if checkDigit(digits[:9], 10) != digits[9] {
		return false
	}
	return checkDigit(digits[:10], 11) == digits[10]
}

// checkDigit computes a CPF check digit over ds with the given starting
// weight (10 for the first digit, 11 for the second).
func checkDigit(ds []int, weight int) int {
	sum := 0
	for _, d := range ds {
		sum += d * weight
		weight--
	}
	r := sum * 10 % 11
	if r == 10 {
		return 0
	}
	return r
}
