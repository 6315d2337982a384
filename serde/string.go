package serde

var StringSerializer = func(data string) ([]byte, error) {
	return []byte(data), nil
}

var StringDeserializer = func(data []byte) (string, error) {
	return string(data), nil
}

// String is a serde for UTF-8 strings.
var String = Serde[string]{
	Serializer:   StringSerializer,
	Deserializer: StringDeserializer,
}
