package schema

// ReservedInstructionKeys are forbidden as field names anywhere in a
// declared table.
var ReservedInstructionKeys = map[string]bool{
	"reservedId":  true,
	"set":         true,
	"get":         true,
	"create":      true,
	"delete":      true,
	"add":         true,
	"remove":      true,
	"not":         true,
	"like":        true,
	"or":          true,
	"limit":       true,
	"offset":      true,
	"order":       true,
	"tableName":   true,
	"foreignKeys": true,
	"parent":      true,
	"required":    true,
	"created":     true,
	"deleted":     true,
	"edited":      true,
	"type":        true,
	"reserved":    true,
}

// ReservedDeclarationKeys are table-declaration keys handled specially by
// the preparer rather than treated as field names.
var ReservedDeclarationKeys = map[string]bool{
	"index":     true,
	"notNull":   true,
	"tableName": true,
}

// ReservedIDColumn is the implicit primary key every physical table carries.
const ReservedIDColumn = "reservedId"
