// Package tuple contains helpers to manipulate relationship tuples.
package tuple

import (
	"fmt"
	"strings"

	openfgav1 "github.com/openfga/api/proto/openfga/v1"
)

// Separator joins the fields of a tuple key into its canonical form.
const Separator = ":"

func NewTupleKey(object, relation, user string) *openfgav1.TupleKey {
	return &openfgav1.TupleKey{
		Object:   object,
		Relation: relation,
		User:     user,
	}
}

// CanonicalKey returns the canonical identity of a tuple key: the user,
// relation and object joined with the Separator. Two tuple keys referring to
// the same relationship fact always produce the same canonical key.
func CanonicalKey(tk *openfgav1.TupleKey) string {
	return strings.Join([]string{tk.GetUser(), tk.GetRelation(), tk.GetObject()}, Separator)
}

// TupleKeyToString converts a tuple key into its string representation,
// 'object#relation@user'.
func TupleKeyToString(tk *openfgav1.TupleKey) string {
	return fmt.Sprintf("%s#%s@%s", tk.GetObject(), tk.GetRelation(), tk.GetUser())
}

// SplitObject splits an object into an objectType and an objectID. If no type is present, it returns the empty string
// and the original object.
func SplitObject(object string) (string, string) {
	switch i := strings.IndexByte(object, ':'); i {
	case -1:
		return "", object
	case len(object) - 1:
		return object[0:i], ""
	default:
		return object[0:i], object[i+1:]
	}
}

func BuildObject(objectType, objectID string) string {
	return fmt.Sprintf("%s:%s", objectType, objectID)
}

// GetType returns the type of an object (e.g. "document" for "document:1").
func GetType(object string) string {
	objectType, _ := SplitObject(object)
	return objectType
}

func NewCheckRequestTupleKey(object, relation, user string) *openfgav1.CheckRequestTupleKey {
	return &openfgav1.CheckRequestTupleKey{
		Object:   object,
		Relation: relation,
		User:     user,
	}
}

func ConvertTupleKeyToWriteTupleKey(tk *openfgav1.TupleKey) *openfgav1.TupleKey {
	return &openfgav1.TupleKey{
		Object:   tk.GetObject(),
		Relation: tk.GetRelation(),
		User:     tk.GetUser(),
	}
}

func ConvertTupleKeyToDeleteTupleKey(tk *openfgav1.TupleKey) *openfgav1.TupleKeyWithoutCondition {
	return &openfgav1.TupleKeyWithoutCondition{
		Object:   tk.GetObject(),
		Relation: tk.GetRelation(),
		User:     tk.GetUser(),
	}
}

func ConvertTupleKeysToWriteRequestTupleKeys(tks []*openfgav1.TupleKey) []*openfgav1.TupleKey {
	result := make([]*openfgav1.TupleKey, 0, len(tks))
	for _, tk := range tks {
		result = append(result, ConvertTupleKeyToWriteTupleKey(tk))
	}
	return result
}

func ConvertTupleKeysToDeleteRequestTupleKeys(tks []*openfgav1.TupleKey) []*openfgav1.TupleKeyWithoutCondition {
	result := make([]*openfgav1.TupleKeyWithoutCondition, 0, len(tks))
	for _, tk := range tks {
		result = append(result, ConvertTupleKeyToDeleteTupleKey(tk))
	}
	return result
}
