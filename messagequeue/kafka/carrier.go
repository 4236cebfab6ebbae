package kafka

import kafkago "github.com/segmentio/kafka-go"

// headerCarrier 让消息头满足 propagation.TextMapCarrier，同名键覆盖.
type headerCarrier []kafkago.Header

func (h *headerCarrier) Get(key string) string {
	for _, hd := range *h {
		if hd.Key == key {
			return string(hd.Value)
		}
	}
	return ""
}

func (h *headerCarrier) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafkago.Header{Key: key, Value: []byte(value)})
}

func (h *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*h))
	for _, hd := range *h {
		keys = append(keys, hd.Key)
	}
	return keys
}
