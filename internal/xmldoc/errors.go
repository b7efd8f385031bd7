package xmldoc

import "errors"

var (
	errNoRoot          = errors.New("document has no root element")
	errMultipleRoots   = errors.New("document has more than one root element")
	errTextOutsideRoot = errors.New("text outside the root element")
	errDuplicateAttr   = errors.New("duplicate attribute")
)
