package resputil

type ErrorCode int

const (
	OK ErrorCode = 0

	// General
	InvalidRequest ErrorCode = 40001

	// Token
	TokenExpired ErrorCode = 40101
	TokenInvalid ErrorCode = 40102

	// Login
	InvalidCredentials ErrorCode = 40106
	UserNotActive      ErrorCode = 40107

	// The acting profile in the token is missing, disabled or changed
	ProfileNotActive ErrorCode = 40108

	// User is not allowed to access the resource
	UserNotAllowed ErrorCode = 40301

	NotFound ErrorCode = 40401
	Conflict ErrorCode = 40901

	// Folder tree would exceed the maximum depth
	MaxDepthExceeded ErrorCode = 42201

	ServiceError ErrorCode = 50001

	// Indicates laziness of the developer
	// Frontend will directly print the message without any translation
	NotSpecified ErrorCode = 99999
)
