package kserde

// Bytes passes values through untouched. It is the default key serde and
// the serde for changelog topics.
var Bytes = Serde[[]byte]{
	Serializer: func(data []byte) ([]byte, error) {
		return data, nil
	},
	Deserializer: func(data []byte) ([]byte, error) {
		return data, nil
	},
}
