package memremote

import "listbind/internal/metadata"

// FieldOption adjusts a wire field description.
type FieldOption func(map[string]any)

// ReadOnly marks the field read-only.
func ReadOnly() FieldOption { return func(f map[string]any) { f["ReadOnlyField"] = true } }

// Multi sets AllowMultipleValues.
func Multi() FieldOption { return func(f map[string]any) { f["AllowMultipleValues"] = true } }

// Titled sets the display title.
func Titled(title string) FieldOption { return func(f map[string]any) { f["Title"] = title } }

// Keyword marks a taxonomy field as the enterprise keyword field.
func Keyword() FieldOption { return func(f map[string]any) { f["IsKeyword"] = true } }

// Field returns a wire field description as served by the fields endpoint.
func Field(name string, kind metadata.FieldKind, typeName string, opts ...FieldOption) map[string]any {
	f := map[string]any{
		"InternalName":  name,
		"Title":         name,
		"FieldTypeKind": float64(kind),
		"TypeAsString":  typeName,
		"ReadOnlyField": false,
		"Hidden":        false,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func Counter(name string) map[string]any {
	return Field(name, metadata.KindCounter, "Counter", ReadOnly())
}

func Text(name string, opts ...FieldOption) map[string]any {
	return Field(name, metadata.KindText, "Text", opts...)
}

func Note(name string, opts ...FieldOption) map[string]any {
	return Field(name, metadata.KindNote, "Note", opts...)
}

func Number(name string, opts ...FieldOption) map[string]any {
	return Field(name, metadata.KindNumber, "Number", opts...)
}

func Integer(name string, opts ...FieldOption) map[string]any {
	return Field(name, metadata.KindInteger, "Integer", opts...)
}

func Boolean(name string, opts ...FieldOption) map[string]any {
	return Field(name, metadata.KindBoolean, "Boolean", opts...)
}

func DateTime(name string, opts ...FieldOption) map[string]any {
	return Field(name, metadata.KindDateTime, "DateTime", opts...)
}

func Image(name string, opts ...FieldOption) map[string]any {
	return Field(name, metadata.KindImage, "Thumbnail", opts...)
}

func Choice(name string, choices ...string) map[string]any {
	f := Field(name, metadata.KindChoice, "Choice")
	f["Choices"] = toAny(choices)
	return f
}

func MultiChoice(name string, choices ...string) map[string]any {
	f := Field(name, metadata.KindMultiChoice, "MultiChoice")
	f["Choices"] = toAny(choices)
	return f
}

// Lookup returns a lookup field targeting listID.
func Lookup(name, listID string, opts ...FieldOption) map[string]any {
	f := Field(name, metadata.KindLookup, "Lookup", opts...)
	f["LookupList"] = listID
	f["LookupField"] = "Title"
	if multi, _ := f["AllowMultipleValues"].(bool); multi {
		f["TypeAsString"] = "LookupMulti"
	} else {
		f["AllowMultipleValues"] = false
	}
	return f
}

// User returns a person field targeting the user information list.
func User(name, userListID string, opts ...FieldOption) map[string]any {
	f := Lookup(name, userListID, opts...)
	f["FieldTypeKind"] = float64(metadata.KindUser)
	f["TypeAsString"] = "User"
	if multi, _ := f["AllowMultipleValues"].(bool); multi {
		f["TypeAsString"] = "UserMulti"
	}
	return f
}

func Attachments() map[string]any {
	return Field("Attachments", metadata.KindAttachments, "Attachments")
}

// Taxonomy returns a single-value managed metadata field.
func Taxonomy(name, termSetID string, opts ...FieldOption) map[string]any {
	f := Field(name, metadata.KindInvalid, "TaxonomyFieldType", opts...)
	f["TermSetId"] = termSetID
	return f
}

// TaxonomyMulti returns a multi-value managed metadata field.
func TaxonomyMulti(name, termSetID string, opts ...FieldOption) map[string]any {
	f := Field(name, metadata.KindInvalid, "TaxonomyFieldTypeMulti", append([]FieldOption{Multi()}, opts...)...)
	f["TermSetId"] = termSetID
	return f
}

// StandardFields are the columns every list has; author and editor target
// userListID.
func StandardFields(userListID string) []map[string]any {
	return []map[string]any{
		Counter("ID"),
		Text("Title"),
		User("Author", userListID, ReadOnly()),
		User("Editor", userListID, ReadOnly()),
		DateTime("Created", ReadOnly()),
		DateTime("Modified", ReadOnly()),
		Text("ContentTypeId"),
	}
}

// UserListFields are the columns of a user information list.
func UserListFields() []map[string]any {
	return []map[string]any{
		Counter("ID"),
		Text("Title"),
		Text("Name"),
		Text("JobTitle"),
		Text("Department"),
		Text("MobilePhone"),
		Text("EMail"),
		Text("OtherMail"),
		Text("UserName"),
		Boolean("UserInfoHidden"),
		Text("ImnName"),
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
