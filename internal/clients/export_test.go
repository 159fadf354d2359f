package clients

// IsFailure exposes isFailure to the external clients_test package.
var IsFailure = isFailure
