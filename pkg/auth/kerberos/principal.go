package kerberos

import "strings"

// SplitPrincipal splits name@REALM at the last unescaped '@'. A principal
// without a realm returns an empty realm.
func SplitPrincipal(principal string) (name, realm string) {
	for i := len(principal) - 1; i >= 0; i-- {
		if principal[i] != '@' {
			continue
		}
		if i > 0 && principal[i-1] == '\\' {
			continue
		}
		return principal[:i], principal[i+1:]
	}
	return principal, ""
}

// JoinPrincipal renders name@REALM, or name alone when realm is empty.
func JoinPrincipal(name, realm string) string {
	if realm == "" {
		return name
	}
	return name + "@" + realm
}

// SamePrincipal compares two principals. Names are case-sensitive and
// realms are not, matching how KDCs canonicalize them.
func SamePrincipal(a, b string) bool {
	an, ar := SplitPrincipal(a)
	bn, br := SplitPrincipal(b)
	return an == bn && strings.EqualFold(ar, br)
}
