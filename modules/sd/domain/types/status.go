package types

// StatusCode corresponds to EmploymentStatusCode from SD.
//
// Employees usually start as not-yet-employed (status 0) and change to
// employed-with-pay (status 1) once they have their first day at work. From
// status 1 they can transfer somewhat freely to the other statuses, including
// back to status 1 from any of them: it is entirely possible to be resigned
// and then get hired back on the same employment.
//
// Deleted ("S") is the only terminal state. SD may later reuse the same
// employment identifier for an unrelated person, so a Deleted segment never
// continues an existing timeline.
type StatusCode string

const (
	StatusNotYetEmployed  StatusCode = "0"
	StatusEmployedWithPay StatusCode = "1"
	StatusOnLeave         StatusCode = "3"
	StatusMigrated        StatusCode = "7"
	StatusResigned        StatusCode = "8"
	StatusDeceased        StatusCode = "9"
	StatusDeleted         StatusCode = "S"
)

// EmployedStatuses is the category of statuses treated as active engagements.
// Not-yet-employed is included so IT accounts can be ready before the first
// day at work.
func EmployedStatuses() []StatusCode {
	return []StatusCode{StatusNotYetEmployed, StatusEmployedWithPay, StatusOnLeave}
}

// LetGoStatuses is the category of statuses representing being let go.
func LetGoStatuses() []StatusCode {
	return []StatusCode{StatusMigrated, StatusResigned, StatusDeceased}
}

// OnPayrollStatuses is the category of statuses with an active salary.
func OnPayrollStatuses() []StatusCode {
	return []StatusCode{StatusEmployedWithPay, StatusOnLeave}
}

func (c StatusCode) IsEmployed() bool {
	return c == StatusNotYetEmployed || c == StatusEmployedWithPay || c == StatusOnLeave
}

func (c StatusCode) IsLetGo() bool {
	return c == StatusMigrated || c == StatusResigned || c == StatusDeceased
}

func (c StatusCode) IsOnPayroll() bool {
	return c == StatusEmployedWithPay || c == StatusOnLeave
}

func (c StatusCode) IsDeleted() bool {
	return c == StatusDeleted
}

// Known reports whether c is one of the modeled SD status codes.
func (c StatusCode) Known() bool {
	switch c {
	case StatusNotYetEmployed, StatusEmployedWithPay, StatusOnLeave,
		StatusMigrated, StatusResigned, StatusDeceased, StatusDeleted:
		return true
	}
	return false
}
