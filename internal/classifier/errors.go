// Package classifier 随机森林睡眠质量分类器（含标准化器与模型文件存储）
package classifier

import "errors"

var (
	// ErrModelUnavailable 模型或标准化器缺失/未训练，调用方应退回启发式评分
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInference 单次推理失败（维度不符、非有限值等），仅影响当前小时
	ErrInference = errors.New("inference error")
	// ErrCorruptArtifact 模型文件无法解析或两份文件不属于同一次训练
	ErrCorruptArtifact = errors.New("corrupt model artifact")
)
