package rbac

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Test-taker permissions.
const (
	PermTestsAvailable = "tests:available"
	PermAttemptStart   = "attempt:start"
	PermAttemptSection = "attempt:section"
	PermAttemptSubmit  = "attempt:submit"
	PermAttemptFinish  = "attempt:finish"
	PermAttemptViewOwn = "attempt:view-own"
	PermAssetsView     = "assets:view"
)

// Administrative permissions. Only the wildcard grants them.
const (
	PermTemplatesManage = "templates:manage"
	PermScheduleManage  = "schedule:manage"
	PermUsersManage     = "users:manage"
	PermAttemptsReview  = "attempts:review"
)

// Default policy.
var RolePermissions = map[string][]string{
	RoleUser: {
		PermTestsAvailable,
		PermAttemptStart,
		PermAttemptSection,
		PermAttemptSubmit,
		PermAttemptFinish,
		PermAttemptViewOwn,
		PermAssetsView,
	},
	RoleAdmin: {
		"*", // everything
	},
}
