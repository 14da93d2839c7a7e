package rbac

import "crm-calls/internal/auth"

// IsStaff reports whether the user type may reach back-office endpoints (reports, presence roster).
func IsStaff(t auth.UserType) bool { return t == auth.UserTypeAdmin }
